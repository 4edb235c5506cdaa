package main

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"CourseEntries/internal/permissions"
)

func execute(args ...string) (string, error) {
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	cmd := rootCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"migrate", "backup", "restore", "purge-course", "grant"} {
		require.True(t, names[want], want)
	}
}

func TestRequiredFlags(t *testing.T) {
	_, err := execute("backup")
	require.ErrorContains(t, err, `required flag(s) "course" not set`)

	_, err = execute("restore", "--course", "3")
	require.ErrorContains(t, err, `"in"`)

	_, err = execute("purge-course")
	require.ErrorContains(t, err, `"course"`)
}

func TestMigrate_Help(t *testing.T) {
	out, err := execute("migrate", "down", "--help")
	require.NoError(t, err)
	require.Contains(t, out, "--steps")
}

func TestGrant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO course_capabilities(user_id, course_id, capability)")).
		WithArgs("u1", 4, "entries:edit").
		WillReturnResult(sqlmock.NewResult(0, 1))

	var out bytes.Buffer
	checker := permissions.NewChecker(db)
	require.NoError(t, grant(context.Background(), checker, &out, "u1", 4, "edit"))
	require.Equal(t, "granted entries:edit to u1 in course 4\n", out.String())

	require.Error(t, grant(context.Background(), checker, &out, "u1", 4, "admin"))
	require.Error(t, grant(context.Background(), checker, &out, "", 4, "view"))
	require.NoError(t, mock.ExpectationsWereMet())
}
