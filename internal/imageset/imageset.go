// Package imageset turns the uploaded image locators of one run into an
// index-addressable set, and fetches the image bytes for analysis.
package imageset

// Image is one source image and its position in the run's ImageSet.
type Image struct {
	Index int    `json:"index" yaml:"index"`
	URL   string `json:"url" yaml:"url"`
}

// ImageSet is the ordered, immutable collection of images for one run.
// Index i is the only identity of an image for the lifetime of the run.
type ImageSet struct {
	images []Image
}

// Resolve pairs every locator with its 0-based index. A nil slice yields an
// empty set. Locators are not filtered or rewritten.
func Resolve(locators []string) ImageSet {
	images := make([]Image, len(locators))
	for i, url := range locators {
		images[i] = Image{Index: i, URL: url}
	}
	return ImageSet{images: images}
}

// Len returns the number of images in the set.
func (s ImageSet) Len() int {
	return len(s.images)
}

// Contains reports whether i is a valid index into the set.
func (s ImageSet) Contains(i int) bool {
	return i >= 0 && i < len(s.images)
}

// URL returns the locator at index i.
func (s ImageSet) URL(i int) (string, bool) {
	if !s.Contains(i) {
		return "", false
	}
	return s.images[i].URL, true
}

// Images returns a copy of the images in index order.
func (s ImageSet) Images() []Image {
	out := make([]Image, len(s.images))
	copy(out, s.images)
	return out
}

// Indices returns 0..Len()-1.
func (s ImageSet) Indices() []int {
	out := make([]int, len(s.images))
	for i := range out {
		out[i] = i
	}
	return out
}
