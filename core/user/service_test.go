package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/user"
	"github.com/trezcool/onhold/storage/database/sqlxrepos"
	"github.com/trezcool/onhold/tests"
)

const pwd = "Strong_Pa$$w0rd"

func newService(t *testing.T) (*user.Service, user.Repository) {
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewUserRepository(db)
	return user.NewService(repo, testutil.NewValidator()), repo
}

func TestService_Create(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "Alice", "alice", "alice@school.test", pwd, user.StaffRoles, true)

	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr []string // fields in error
	}{
		{
			name:    "no username nor email",
			nu:      user.NewUser{Name: "Bob", Password: pwd, PasswordConfirm: pwd},
			wantErr: []string{"username", "email"},
		},
		{
			name:    "passwords mismatch",
			nu:      user.NewUser{Name: "Bob", Username: "bob", Password: pwd, PasswordConfirm: pwd + "x"},
			wantErr: []string{"password_confirm"},
		},
		{
			name:    "weak password",
			nu:      user.NewUser{Name: "Bob", Username: "bob", Password: "password", PasswordConfirm: "password"},
			wantErr: []string{"password"},
		},
		{
			name:    "password like username",
			nu:      user.NewUser{Name: "Bob", Username: "bobby_tables", Password: "Bobby_Tables1", PasswordConfirm: "Bobby_Tables1"},
			wantErr: []string{"password"},
		},
		{
			name:    "bad username",
			nu:      user.NewUser{Name: "Bob", Username: "bob smith", Password: pwd, PasswordConfirm: pwd},
			wantErr: []string{"username"},
		},
		{
			name:    "bad role",
			nu:      user.NewUser{Name: "Bob", Username: "bob", Password: pwd, PasswordConfirm: pwd, Roles: []string{"root:"}},
			wantErr: []string{"roles"},
		},
		{
			name:    "taken email",
			nu:      user.NewUser{Name: "Alias", Email: "ALICE@school.test", Password: pwd, PasswordConfirm: pwd},
			wantErr: []string{"username"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.nu)
			require.Error(t, err)

			var got []string
			var vErrs validator.ValidationErrors
			if errors.As(err, &vErrs) {
				for _, e := range vErrs {
					got = append(got, e.Field())
				}
			} else {
				vErr, ok := errors.Cause(err).(*core.ValidationError)
				require.True(t, ok, "got %v", err)
				for _, f := range vErr.Fields {
					got = append(got, f.Field)
				}
			}
			assert.ElementsMatch(t, tt.wantErr, got)
		})
	}

	usr, err := svc.Create(ctx, user.NewUser{Name: "Bob", Username: " Bob ", Password: pwd, PasswordConfirm: pwd})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.Equal(t, "bob", usr.Username)
	assert.True(t, usr.IsActive)
	assert.Equal(t, user.StaffRoles, usr.Roles)
	assert.NoError(t, usr.CheckPassword(pwd))
	assert.False(t, usr.IsAdmin())
}

func TestService_AddOrUpdate(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	existing := testutil.CreateUser(t, repo, "Alice", "alice", "alice@school.test", pwd, user.StaffRoles, false)

	usr, err := svc.AddOrUpdate(ctx, "", "ALICE", "", "simple", true)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, usr.ID)
	assert.True(t, usr.IsActive)
	assert.True(t, usr.IsAdmin())
	assert.NoError(t, usr.CheckPassword("simple"))

	usr, err = svc.AddOrUpdate(ctx, "Carol", "", "carol@school.test", "x", false)
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, usr.ID)
	assert.Equal(t, "Carol", usr.Name)
	assert.Equal(t, user.StaffRoles, usr.Roles)

	got, err := svc.GetByUsernameOrEmail(ctx, " Carol@School.test ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.AddOrUpdate(ctx, "Nobody", "", "", "x", false)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "got %v", err)
}

func TestService_ResetPasswordAndLastLogin(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Alice", "alice", "", pwd, user.AdminRoles, true)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.ResetPassword(ctx, "nobody", "x")))
	require.NoError(t, svc.ResetPassword(ctx, "alice", "N3w_Pa$$word"))

	got, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("N3w_Pa$$word"))
	assert.True(t, got.LastLogin.IsZero())
	assert.Equal(t, "alice", got.Identity())

	got, err = svc.SetLastLogin(ctx, got)
	require.NoError(t, err)
	assert.False(t, got.LastLogin.IsZero())

	_, err = svc.GetByID(ctx, "not-a-uuid")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}
