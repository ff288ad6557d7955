package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func metadataValues(args []string) map[string]string {
	got := map[string]string{}
	for i, a := range args {
		if a == "-metadata" && i+1 < len(args) {
			kv := args[i+1]
			for j := 0; j < len(kv); j++ {
				if kv[j] == '=' {
					got[kv[:j]] = kv[j+1:]
					break
				}
			}
		}
	}
	return got
}

func TestEmbedArgsMetadata(t *testing.T) {
	args := embedArgs("in.mp3", "out.mp3", Tags{
		Title:     "Tum Hi Ho",
		Artists:   []string{"Arijit Singh", "Mithoon"},
		Album:     "Aashiqui 2",
		Year:      "2013",
		Genre:     "Filmi",
		Composers: []string{"Mithoon"},
		Language:  "Hindi",
		Label:     "T-Series",
		Lyrics:    []string{"[00:01.00] line one"},
	})

	md := metadataValues(args)
	assert.Equal(t, "Tum Hi Ho", md["title"])
	assert.Equal(t, "Arijit Singh; Mithoon", md["artist"])
	assert.Equal(t, "Aashiqui 2", md["album"])
	assert.Equal(t, "2013", md["date"])
	assert.Equal(t, "Filmi", md["genre"])
	assert.Equal(t, "Mithoon", md["composer"])
	assert.Equal(t, "Hindi", md["language"])
	assert.Equal(t, "T-Series", md["publisher"])
	assert.Equal(t, "[00:01.00] line one", md["lyrics"])

	assert.Equal(t, "out.mp3", args[len(args)-1])
	assert.NotContains(t, args, "-disposition:v")
}

func TestEmbedArgsSkipsEmptyFields(t *testing.T) {
	args := embedArgs("in.mp3", "out.mp3", Tags{Title: "Only Title"})

	md := metadataValues(args)
	assert.Equal(t, map[string]string{"title": "Only Title"}, md)
}

func TestEmbedArgsWithCover(t *testing.T) {
	args := embedArgs("in.mp3", "out.mp3", Tags{Title: "X", CoverPath: "cover.jpg"})

	assert.Contains(t, args, "cover.jpg")
	assert.Contains(t, args, "-disposition:v")
	assert.Contains(t, args, "attached_pic")

	// both inputs precede the mapping flags
	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	assert.Equal(t, []string{"in.mp3", "cover.jpg"}, inputs)
}

func TestTempOutputPathKeepsExtension(t *testing.T) {
	assert.Equal(t, "/music/My Song.tagged.mp3", tempOutputPath("/music/My Song.mp3"))
}
