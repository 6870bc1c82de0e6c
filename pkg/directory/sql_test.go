package directory

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func userColumns() []string {
	return []string{"id", "username", "email", "full_name", "department", "active", "password", "created_at", "last_login_at", "last_login_ip"}
}

func TestVerifyPassword_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("kapal-laut-1"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, username, email, full_name, department, status = 'active', password`).
		WithArgs("budi").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(7, "budi", "budi@kkp.example", "Budi Santoso", "harbor", true, string(hash), time.Now(), nil, ""))
	mock.ExpectQuery(`SELECT r.name`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("operator"))
	mock.ExpectQuery(`SELECT DISTINCT p.name`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("access spb").AddRow("manage spb"))

	d := NewSQLDirectory(db)
	user, err := d.VerifyPassword(context.Background(), "budi", "kapal-laut-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, []string{"operator"}, user.Roles)
	assert.Equal(t, []string{"access spb", "manage spb"}, user.Permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("budi").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(7, "budi", "budi@kkp.example", "", "", true, string(hash), time.Now(), nil, ""))

	d := NewSQLDirectory(db)
	_, err = d.VerifyPassword(context.Background(), "budi", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyPassword_UnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userColumns()))

	d := NewSQLDirectory(db)
	_, err = d.VerifyPassword(context.Background(), "ghost", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyPassword_InactiveUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	mock.ExpectQuery(`SELECT id, username`).
		WithArgs("dewi").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(9, "dewi", "dewi@kkp.example", "", "", false, string(hash), time.Now(), nil, ""))

	d := NewSQLDirectory(db)
	_, err = d.VerifyPassword(context.Background(), "dewi", "pw")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestIsActive(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT status = 'active' FROM users`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))
	mock.ExpectQuery(`SELECT status = 'active' FROM users`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"active"}))

	d := NewSQLDirectory(db)

	active, err := d.IsActive(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, active)

	// missing user is reported inactive, not an error
	active, err = d.IsActive(context.Background(), 404)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestHasServiceGrant(t *testing.T) {
	perms := []string{"access spb", "manage shti", "spbadmincenter"}

	assert.True(t, HasServiceGrant(perms, "spb"))
	assert.True(t, HasServiceGrant(perms, "shti"))
	// exact match only: "spbadmincenter" must not grant anything
	assert.False(t, HasServiceGrant(perms, "epit"))
	assert.False(t, HasServiceGrant(perms, "admincenter"))
}

func TestFilterServicePermissions(t *testing.T) {
	userPerms := []string{"access spb", "manage spb", "spb.reports.read", "access shti", "spbadmincenter"}
	declared := []string{"access spb", "manage spb", "spb.reports.read"}

	got := FilterServicePermissions(userPerms, declared)
	assert.Equal(t, []string{"access spb", "manage spb", "spb.reports.read"}, got)

	// nothing declared, nothing snapshotted
	assert.Nil(t, FilterServicePermissions(userPerms, nil))
}

func TestMemoryDirectory(t *testing.T) {
	d := NewMemoryDirectory()
	id := d.AddUser(User{Username: "budi", Email: "budi@kkp.example", Active: true,
		Permissions: []string{"access spb"}}, "rahasia")

	user, err := d.VerifyPassword(context.Background(), "budi", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)

	_, err = d.VerifyPassword(context.Background(), "budi", "salah")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	ok, err := d.HasGrant(context.Background(), id, "spb")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.HasGrant(context.Background(), id, "shti")
	require.NoError(t, err)
	assert.False(t, ok)

	d.SetActive(id, false)
	_, err = d.VerifyPassword(context.Background(), "budi", "rahasia")
	assert.ErrorIs(t, err, ErrUserInactive)

	active, err := d.IsActive(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, active)
}
