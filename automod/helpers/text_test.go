package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	// hashing function should be consistent over time
	assert.Equal("4e6f69c0e3d10992", HashOfString("dummy-value"))
}

func TestNaturalText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out string
	}{
		{
			s:   "Привет всем @ivan смотри https://t.me/joinchat/abc #crypto /start@guardbot",
			out: "Привет всем смотри",
		},
		{
			s:   "/unban_user 42 -100123",
			out: "42 -100123",
		},
		{
			s:   "  hello\n\nthere  ",
			out: "hello there",
		},
		{
			s:   "example.com",
			out: "",
		},
		{
			s:   "easy income, write to t.me/easy_income_bot?start=42 today",
			out: "easy income, write to today",
		},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, NaturalText(fix.s))
	}
}
