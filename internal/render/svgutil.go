package render

import "bytes"

// sanitizeSVG normalizes style spellings that oksvg's attribute parser
// rejects, such as a space between the property colon and its value.
func sanitizeSVG(data []byte) []byte {
	replacements := [][2]string{
		{"fill: ", "fill:"},
		{"stroke: ", "stroke:"},
		{"stop-color: ", "stop-color:"},
		{"stroke-width: ", "stroke-width:"},
		{"stroke-linejoin: ", "stroke-linejoin:"},
		{"stroke-linecap: ", "stroke-linecap:"},
		{"opacity: ", "opacity:"},
	}
	for _, pair := range replacements {
		data = bytes.ReplaceAll(data, []byte(pair[0]), []byte(pair[1]))
	}
	return data
}
