package llm

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/appraisal-lots/internal/lot"
)

var languageNames = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
}

// LanguageName returns the English name of a language hint, defaulting to English.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return "English"
}

const lotSchema = `
	Respond ONLY with a JSON object of this shape, no markdown or other text:
	{
	  "summary": "one or two sentences about the whole inventory",
	  "lots": [
	    {
	      "lot_id": "1",
	      "title": "short descriptive title",
	      "description": "2-3 sentence appraisal description",
	      "condition": "new | excellent | good | fair | poor, with a short note",
	      "estimated_value": 120,
	      "tags": ["furniture", "oak"],
	      "serial_no_or_label": "serial number, model plate or asset label exactly as printed, or null",
	      "details": "brand, model, dimensions, materials and other identifying attributes",
	      "image_indexes": [0]
	    }
	  ]
	}

	Rules:
	- Images are numbered from 0 in the order they are attached.
	- serial_no_or_label must be null unless an identifier is clearly legible. Never invent one.
	- estimated_value is a number in %s, without currency symbols.
	- Write title, description, condition and details in %s.`

const singleLotPrompt = `
	You are appraising an inventory lot from %d photos. All photos show ONE physical lot.

	Some photos are near-duplicates: the same subject from a slightly different angle, or a
	redundant shot. Group such near-identical photos together and pick ONE representative
	photo index per group.

	Return exactly one lot. Its image_indexes must contain only the representative index of
	each group, each index at most once. Put the indexes of the redundant photos you left out
	in extra_image_indexes.`

const perItemPrompt = `
	You are appraising the contents of ONE photo for an asset inventory.

	List every distinct physical item you can see in this photo as a separate lot, including
	small items in the background if they have resale value. Do not merge different items.
	If the photo shows no appraisable item, return an empty lots array.

	Set image_indexes to [0] for every lot.`

const perPhotoPrompt = `
	You are appraising an asset inventory from %d photos. Each photo is its own lot.

	Return EXACTLY one lot per photo: %d lots in total. Each lot covers exactly one photo, so
	its image_indexes contains exactly one index, and no index appears in more than one lot.
	Describe the main subject of each photo.`

// LotPrompt builds the instruction prompt for a grouping mode.
func LotPrompt(mode lot.GroupingMode, imageCount int, language, currency string) string {
	var head string
	switch mode {
	case lot.SingleLot:
		head = fmt.Sprintf(singleLotPrompt, imageCount)
	case lot.PerItem:
		head = perItemPrompt
	case lot.PerPhoto:
		head = fmt.Sprintf(perPhotoPrompt, imageCount, imageCount)
	default:
		head = perItemPrompt
	}
	schema := fmt.Sprintf(lotSchema, strings.ToUpper(currency), LanguageName(language))
	return strings.TrimSpace(dedent.Dedent(head)) + "\n\n" + strings.TrimSpace(dedent.Dedent(schema))
}
