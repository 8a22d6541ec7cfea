package chathub

import "math/rand/v2"

var (
	nameAdjectives = []string{"Anonymous", "Mysterious", "Happy", "Quiet", "Curious", "Lively", "Gentle", "Brave", "Clever", "Witty"}
	nameNouns      = []string{"Panda", "Kitten", "Fox", "Whale", "Rabbit", "Dolphin", "Tiger", "Lion", "Penguin", "Koala"}

	// Palette holds every color a session can be assigned.
	Palette = []string{
		"#FF6B6B", "#4ECDC4", "#FFD166", "#06D6A0", "#118AB2",
		"#EF476F", "#073B4C", "#7209B7", "#3A86FF", "#FB5607",
	}
)

// IdentityFunc produces a display name and a display color.
type IdentityFunc func() (name, color string)

// GenerateIdentity draws a name ("<Adjective> <Noun>") and a palette color uniformly at random.
func GenerateIdentity() (string, string) {
	name := nameAdjectives[rand.IntN(len(nameAdjectives))] + " " + nameNouns[rand.IntN(len(nameNouns))]
	return name, Palette[rand.IntN(len(Palette))]
}
