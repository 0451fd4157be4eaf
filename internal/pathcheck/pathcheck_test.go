package pathcheck

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	paths := []string{
		"photos",
		"/home/user/Pictures",
		"/",
		"./camera roll/2024",
		"../backup.d/out-1",
		`C:\Users\me\Pictures`,
		"D:/Photos/Trip 2023",
		"photos/",
		"Фото/отпуск",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			got, err := Validate(p)
			require.NoError(t, err)
			assert.Equal(t, p, got)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	paths := []string{
		"",
		"~/Pictures",
		"photos//2024",
		"a/b*",
		"$HOME/x",
		"photos\n",
		"C:",
		"a|b",
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			_, err := Validate(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPath))

			var pe *InvalidPathError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, p, pe.Path)
		})
	}
}
