package index

import (
	"os"
	"testing"
)

func BenchmarkLoad(b *testing.B) {
	data, err := os.ReadFile("testdata/searchindex.js")
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for b.Loop() {
		if _, err := Load(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPrefixTerms(b *testing.B) {
	data, err := os.ReadFile("testdata/searchindex.js")
	if err != nil {
		b.Fatal(err)
	}
	store, err := Load(data)
	if err != nil {
		b.Fatal(err)
	}
	for _, prefix := range []string{"a", "rev", "zzz"} {
		b.Run(prefix, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_, _ = store.PrefixTerms(prefix, 20)
			}
		})
	}
}
