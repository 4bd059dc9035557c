package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/onhold/apps/api/echo"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/user"
)

func Test_userLogin(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{name: "Missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{
			name: "Unknown user", body: []byte(`{"username": "nobody", "password": "x"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Wrong password", body: []byte(`{"username": "alice", "password": "nope"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Deactivated", body: marchallObj(t, echoapi.LoginRequest{Username: "gone", Password: password}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "By username", body: marchallObj(t, echoapi.LoginRequest{Username: " ALICE ", Password: password}),
			wantCode: http.StatusOK,
		},
		{
			name: "By email", body: marchallObj(t, echoapi.LoginRequest{Username: "alice@school.test", Password: password}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := f.run(t, tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				var res echoapi.LoginResponse
				decode(t, rec, &res)
				assert.NotEmpty(t, res.Token)
			}
		})
	}

	entries, err := f.activities.Query(context.Background(), activity.QueryFilter{Action: activity.ActionUserLogin})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alice@school.test", entries[0].Actor)
}

func Test_userMe(t *testing.T) {
	f := setup(t)

	req, rec := newAuthRequest(http.MethodGet, "/api/users/me", getToken(t, f.app, f.staff))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, f.staff.ID, usr.ID)
	assert.Equal(t, "alice", usr.Username)
	assert.NotContains(t, rec.Body.String(), "password")

	tt := httpTest{method: http.MethodGet, path: "/api/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}
	checkCodeAndData(t, tt, f.run(t, tt))

	tt.token = "not.a.jwt"
	tt.wantData = marchallObj(t, httpErr{Error: "invalid or expired jwt"})
	checkCodeAndData(t, tt, f.run(t, tt))
}

func Test_userRefreshToken(t *testing.T) {
	f := setup(t)

	now := time.Now()
	unrefreshableToken, err := f.app.GenerateToken(&echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    f.conf.AppName,
			Subject:   f.staff.ID,
			ExpiresAt: now.Add(f.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * f.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     f.staff.Username,
		Email:        f.staff.Email,
		Roles:        f.staff.Roles,
	})
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Inactive user not allowed", token: getToken(t, f.app, f.inactive),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "Token refreshed", token: getToken(t, f.app, f.staff), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}
}

func Test_userCreate(t *testing.T) {
	f := setup(t)

	newUser := func(uname, email string) []byte {
		return marchallObj(t, user.NewUser{
			Name:            "Bob Builder",
			Username:        uname,
			Email:           email,
			Password:        password,
			PasswordConfirm: password,
		})
	}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, f.app, f.staff), body: newUser("bob", "bob@school.test"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Invalid", token: getToken(t, f.app, f.admin), body: []byte(`{"name": "Bob"}`), wantCode: http.StatusBadRequest},
		{name: "Created", token: getToken(t, f.app, f.admin), body: newUser("bob", "bob@school.test"), wantCode: http.StatusCreated},
		{name: "Username taken", token: getToken(t, f.app, f.admin), body: newUser("bob", "bob2@school.test"), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/users"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}

	usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{UsernameOrEmail: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleStaff}, usr.Roles)
	assert.True(t, usr.IsActive)
}
