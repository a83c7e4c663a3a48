package grouping

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/CrowderSoup/workboard/models"
)

// Fingerprint hashes everything a partition depends on. Anything caching
// group definitions for (list, group-by type) must drop them when the
// fingerprint changes.
func Fingerprint(in Input, by models.GroupBy) string {
	by = by.Normalized()
	h := sha256.New()
	fmt.Fprintf(h, "list=%s;type=%s;field=%s\n", in.ListID, by.Type, by.FieldID)

	switch by.Type {
	case models.GroupStage:
		for _, s := range in.Stages {
			fmt.Fprintf(h, "stage=%s|%d|%s|%s|%s\n", s.ID, s.Order, s.Name, s.Color, s.Icon)
		}
	case models.GroupField:
		if in.Field != nil {
			writeField(h, *in.Field)
		}
		for _, v := range in.Values {
			fmt.Fprintf(h, "value=%s\n", v)
		}
		fmt.Fprintf(h, "empty=%t\n", in.HasEmpty)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func writeField(w io.Writer, f models.Field) {
	fmt.Fprintf(w, "field=%s|%s|%s|%t\n", f.ID, f.Name, f.Type, f.Multiple)
	for _, o := range f.Options {
		fmt.Fprintf(w, "option=%s|%s|%s|%d\n", o.ID, o.Name, o.Color, o.Order)
	}
}
