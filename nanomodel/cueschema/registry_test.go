package cueschema_test

import (
	"testing"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nanomodel/nanomodel/cueschema"
	"github.com/arthur-debert/nanomodel/nanomodel/schema"
	"github.com/arthur-debert/nanomodel/types"
)

const userSchema = `
#Email: =~"^[^@]+@[^@]+$"

#User: {
	_id?:    string
	name:    string
	email?:  #Email
	age?:    number & >=0 & <=150
	joined?: string
	tags?: [...string]
}
`

func newRegistry(t *testing.T) *cueschema.Registry {
	t.Helper()
	reg := cueschema.NewRegistry()
	require.NoError(t, reg.AddSchema(userSchema, "user.cue"))
	return reg
}

func TestValidate(t *testing.T) {
	reg := newRegistry(t)

	t.Run("valid document", func(t *testing.T) {
		doc := types.Document{
			types.IDField: types.NewID(),
			"name":        "Ada",
			"email":       "ada@example.com",
			"age":         36.0,
			"joined":      time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
			"tags":        []any{"admin"},
		}
		assert.Empty(t, reg.Validate(doc, "user.cue#/#User"))
	})

	t.Run("every violation is reported", func(t *testing.T) {
		doc := types.Document{"name": "Ada", "email": "nope", "age": 200.0}
		errs := reg.Validate(doc, "user.cue#/#User")
		require.Len(t, errs, 2)
		for _, err := range errs {
			assert.Equal(t, errors.CodeCUEValidationFailed, errors.GetCode(err))
		}

		issues, err := reg.Check(doc, "user.cue#/#User")
		require.NoError(t, err)
		var paths []string
		for _, is := range issues {
			paths = append(paths, is.Path)
		}
		assert.ElementsMatch(t, []string{"age", "email"}, paths)
	})

	t.Run("missing required fields", func(t *testing.T) {
		assert.NotEmpty(t, reg.Validate(types.Document{"age": 3.0}, "user.cue#/#User"))
	})

	t.Run("definitions are closed", func(t *testing.T) {
		errs := reg.Validate(types.Document{"name": "Ada", "nickname": "A"}, "user.cue#/#User")
		require.NotEmpty(t, errs)
	})

	t.Run("unknown references", func(t *testing.T) {
		errs := reg.Validate(types.Document{}, "missing.cue")
		require.Len(t, errs, 1)
		assert.True(t, types.IsInvalidSchema(errs[0]))

		errs = reg.Validate(types.Document{}, "user.cue#/#Nobody")
		require.Len(t, errs, 1)
		assert.True(t, types.IsInvalidSchema(errs[0]))
	})
}

func TestCheck(t *testing.T) {
	reg := newRegistry(t)

	issues, err := reg.Check(types.Document{"name": "Ada", "age": -1.0}, "user.cue#/#User")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "age", issues[0].Path)
}

func TestAddSchema(t *testing.T) {
	reg := newRegistry(t)

	err := reg.AddSchema(`a: int`, "user.cue")
	assert.True(t, types.IsInvalidSchema(err), "duplicate uri")

	err = reg.AddSchema(`a: int`, "")
	assert.True(t, types.IsInvalidSchema(err), "empty uri")

	err = reg.AddSchema(`a: {`, "broken.cue")
	assert.Equal(t, errors.CodeCUEBuildFailed, errors.GetCode(err))

	require.NoError(t, reg.AddSchema(`#Point: {x: number, y: number}`, "shapes.cue"))
	assert.Equal(t, []string{"shapes.cue", "user.cue"}, reg.URIs())
}

func TestHook(t *testing.T) {
	reg := newRegistry(t)
	s, err := schema.New("users", schema.Definition{
		"name":  schema.String,
		"email": reg.Hook("user.cue#/#Email"),
	})
	require.NoError(t, err)

	doc, err := s.Validate(map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", doc["email"])

	_, err = s.Validate(map[string]any{"name": "Ada", "email": "ada"})
	require.Error(t, err)
	assert.True(t, types.IsTypeMismatch(err))
	assert.Contains(t, types.Message(err), "email: ")

	doc, err = s.Validate(map[string]any{"name": "Ada", "email": nil})
	require.NoError(t, err)
	assert.Nil(t, doc["email"])

	broken := reg.Hook("nowhere.cue")
	_, err = broken.Validate("x", "field")
	assert.True(t, types.IsInvalidSchema(err))
}
