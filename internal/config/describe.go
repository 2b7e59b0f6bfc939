package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/zoobzio/sentinel"

	"github.com/linuxmatters/corti/internal/stimulus"
)

// Describe documents every template key, grouped by section.
func Describe() string {
	var b strings.Builder
	for _, f := range fieldsOf[Template]() {
		fmt.Fprintf(&b, "%s:\n", f.key)
		switch f.key {
		case "model":
			describeFields(&b, fieldsOf[ModelSection](), "  ")
		case "stimulus":
			describeFields(&b, fieldsOf[stimulus.Template](), "  ")
			describeFields(&b, fieldsOf[StimulusSection](), "  ")
		case "output":
			describeFields(&b, fieldsOf[OutputSection](), "  ")
		case "logging":
			describeFields(&b, fieldsOf[LoggingSection](), "  ")
		}
	}
	return b.String()
}

type fieldDoc struct {
	key, typ, desc string
	nested         []fieldDoc
}

func describeFields(b *strings.Builder, fields []fieldDoc, indent string) {
	for _, f := range fields {
		if f.desc != "" {
			fmt.Fprintf(b, "%s%s (%s): %s\n", indent, f.key, f.typ, f.desc)
		} else {
			fmt.Fprintf(b, "%s%s (%s)\n", indent, f.key, f.typ)
		}
		describeFields(b, f.nested, indent+"  ")
	}
}

// fieldsOf lists the YAML keys of T. Inline and untagged fields are
// skipped. Fields come from reflection. sentinel caches by bare type name,
// which config.Template and stimulus.Template share, so its metadata is only
// used for fields it reports under a name T actually has.
func fieldsOf[T any]() []fieldDoc {
	rt := reflect.TypeFor[T]()
	meta := make(map[string]sentinel.FieldMetadata)
	for _, f := range sentinel.Inspect[T]().Fields {
		if _, ok := rt.FieldByName(f.Name); ok {
			meta[f.Name] = f
		}
	}

	var docs []fieldDoc
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		f, known := meta[sf.Name]
		tag, ok := sf.Tag.Lookup("yaml")
		if known {
			if t, found := f.Tags["yaml"]; found {
				tag, ok = t, true
			}
		}
		if !ok || strings.Contains(tag, "inline") {
			continue
		}
		key, _, _ := strings.Cut(tag, ",")
		if key == "" || key == "-" {
			continue
		}
		typ, desc := sf.Type.String(), sf.Tag.Get("desc")
		if known {
			if f.Type != "" {
				typ = f.Type
			}
			if d, found := f.Tags["desc"]; found {
				desc = d
			}
		}
		doc := fieldDoc{key: key, typ: typ, desc: desc}
		if sf.Name == "Fibers" {
			doc.nested = fieldsOf[FiberSection]()
		}
		docs = append(docs, doc)
	}
	return docs
}
