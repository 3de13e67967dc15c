package resolve

import "strings"

var nationalityByCode = map[string]string{
	"fr": "French", "gb": "British", "fi": "Finnish", "ee": "Estonian", "be": "Belgian",
	"jp": "Japanese", "se": "Swedish", "nl": "Dutch", "ie": "Irish", "es": "Spanish",
	"de": "German", "no": "Norwegian", "at": "Austrian", "it": "Italian", "pl": "Polish",
	"cl": "Chilean", "mx": "Mexican", "nz": "New Zealander", "au": "Australian",
	"cz": "Czech", "pt": "Portuguese", "ke": "Kenyan", "ar": "Argentine", "br": "Brazilian",
	"uy": "Uruguayan", "py": "Paraguayan", "sa": "Saudi", "mc": "Monégasque",
	"gr": "Greek", "hr": "Croatian", "lv": "Latvian", "lt": "Lithuanian", "bg": "Bulgarian",
	"ro": "Romanian", "hu": "Hungarian", "sk": "Slovak", "si": "Slovenian", "dk": "Danish",
	"us": "American", "ca": "Canadian", "za": "South African", "in": "Indian",
}

var nationalityBySlug = map[string]string{
	"france":         "French",
	"england":        "British",
	"finland":        "Finnish",
	"estonia":        "Estonian",
	"belgium":        "Belgian",
	"japan":          "Japanese",
	"sweden":         "Swedish",
	"netherlands":    "Dutch",
	"ireland":        "Irish",
	"spain":          "Spanish",
	"germany":        "German",
	"norway":         "Norwegian",
	"austria":        "Austrian",
	"italy":          "Italian",
	"poland":         "Polish",
	"chile":          "Chilean",
	"mexico":         "Mexican",
	"new_zealand":    "New Zealander",
	"australia":      "Australian",
	"czech":          "Czech",
	"czech_republic": "Czech",
}

// NationalityFromCode maps a two-letter flag code. Unknown codes pass through.
func NationalityFromCode(code string) string {
	code = strings.TrimSpace(code)
	if n, ok := nationalityByCode[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

// NationalityFromSlug maps a flag file slug such as "new_zealand".
func NationalityFromSlug(slug string) string {
	slug = strings.TrimSpace(slug)
	if n, ok := nationalityBySlug[strings.ToLower(slug)]; ok {
		return n
	}
	return slug
}
