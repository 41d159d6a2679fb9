package models

// catalogEntry is a whisper.cpp model the manager knows how to fetch.
type catalogEntry struct {
	Name            string
	FileName        string
	SizeDescription string
	RAMDescription  string
	RAMBytes        uint64
}

const gib = 1 << 30

// catalog lists the ggml models published in the whisper.cpp repository.
// RAM figures are the approximate working set reported upstream.
var catalog = []catalogEntry{
	{Name: "tiny.en", FileName: "ggml-tiny.en.bin", SizeDescription: "~75 MB", RAMDescription: "~390 MB", RAMBytes: 390 << 20},
	{Name: "tiny", FileName: "ggml-tiny.bin", SizeDescription: "~75 MB", RAMDescription: "~390 MB", RAMBytes: 390 << 20},
	{Name: "base.en", FileName: "ggml-base.en.bin", SizeDescription: "~142 MB", RAMDescription: "~500 MB", RAMBytes: 500 << 20},
	{Name: "base", FileName: "ggml-base.bin", SizeDescription: "~142 MB", RAMDescription: "~500 MB", RAMBytes: 500 << 20},
	{Name: "small.en", FileName: "ggml-small.en.bin", SizeDescription: "~466 MB", RAMDescription: "~1.0 GB", RAMBytes: 1 * gib},
	{Name: "small", FileName: "ggml-small.bin", SizeDescription: "~466 MB", RAMDescription: "~1.0 GB", RAMBytes: 1 * gib},
	{Name: "medium.en", FileName: "ggml-medium.en.bin", SizeDescription: "~1.5 GB", RAMDescription: "~2.6 GB", RAMBytes: 2600 << 20},
	{Name: "medium", FileName: "ggml-medium.bin", SizeDescription: "~1.5 GB", RAMDescription: "~2.6 GB", RAMBytes: 2600 << 20},
	{Name: "large-v3-turbo", FileName: "ggml-large-v3-turbo.bin", SizeDescription: "~1.6 GB", RAMDescription: "~3.1 GB", RAMBytes: 3100 << 20},
	{Name: "large-v3", FileName: "ggml-large-v3.bin", SizeDescription: "~2.9 GB", RAMDescription: "~4.7 GB", RAMBytes: 4700 << 20},
}

func lookup(name string) (catalogEntry, bool) {
	for _, e := range catalog {
		if e.Name == name {
			return e, true
		}
	}
	return catalogEntry{}, false
}
