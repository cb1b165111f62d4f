package patchanalysis

import (
	"path"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"
)

var extensionLanguages = map[string]string{
	"c":      "C",
	"h":      "C/C++",
	"cc":     "C++",
	"cpp":    "C++",
	"cxx":    "C++",
	"hh":     "C++",
	"hpp":    "C++",
	"mm":     "Objective-C++",
	"m":      "Objective-C",
	"rs":     "Rust",
	"js":     "JavaScript",
	"jsm":    "JavaScript",
	"mjs":    "JavaScript",
	"jsx":    "JavaScript",
	"ts":     "TypeScript",
	"py":     "Python",
	"sh":     "Shell",
	"java":   "Java",
	"kt":     "Kotlin",
	"css":    "CSS",
	"scss":   "CSS",
	"html":   "HTML",
	"xhtml":  "HTML",
	"xul":    "XUL",
	"xml":    "XML",
	"idl":    "IDL",
	"webidl": "WebIDL",
	"ipdl":   "IPDL",
	"ipdlh":  "IPDL",
	"asm":    "Assembly",
	"s":      "Assembly",
	"ftl":    "Fluent",
	"dtd":    "DTD",
}

var filenameLanguages = map[string]string{
	"moz.build":     "Python",
	"moz.configure": "Python",
	"Makefile.in":   "Makefile",
	"Makefile":      "Makefile",
	"configure.in":  "Shell",
	"mach":          "Python",
}

// Language classifies p from its file name, falling back to enry for
// names the tables do not know. Unknown files yield "".
func Language(p string) string {
	base := path.Base(p)

	if lang, ok := filenameLanguages[base]; ok {
		return lang
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}

	return enry.GetLanguage(base, nil)
}

// Languages returns the sorted distinct languages of paths.
func Languages(paths []string) []string {
	var langs []string

	for _, p := range paths {
		lang := Language(p)
		if lang != "" && !slices.Contains(langs, lang) {
			langs = append(langs, lang)
		}
	}

	slices.Sort(langs)

	return langs
}
