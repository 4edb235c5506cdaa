package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testForm struct {
	CourseID int64  `json:"courseId" validate:"gt=0"`
	Name     string `json:"name" validate:"required,max=5"`
}

// TestValidateStruct_OK проверяет корректную структуру
func TestValidateStruct_OK(t *testing.T) {
	require.NoError(t, ValidateStruct(testForm{CourseID: 1, Name: "abc"}))
}

// TestValidateStruct_Failures проверяет имена полей и теги в ошибках
func TestValidateStruct_Failures(t *testing.T) {
	err := ValidateStruct(testForm{CourseID: 0, Name: "toolong"})
	require.Error(t, err)
	fe, ok := err.(FieldErrors)
	require.True(t, ok, "expected FieldErrors, got %T", err)
	require.Len(t, fe, 2)
	require.Equal(t, "courseId", fe[0].Field)
	require.Equal(t, "gt", fe[0].Tag)
	require.Equal(t, "name", fe[1].Field)
	require.Equal(t, "max", fe[1].Tag)
	require.Equal(t, "5", fe[1].Param)
	require.Contains(t, fe.Error(), "name failed on max=5")
}
