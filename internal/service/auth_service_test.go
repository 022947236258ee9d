package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loginInput(username, password string) LoginInput {
	return LoginInput{
		Username:  username,
		Password:  password,
		IPAddress: "127.0.0.1",
		UserAgent: "tests",
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "medico1", model.RolMedico)

	result, err := env.auth.Login(context.Background(), loginInput("medico1", testPassword))
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, "Bearer", result.Tokens.TokenType)

	token, err := jwt.Parse(result.Tokens.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte(env.cfg.JWTAccessSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "access", claims["type"])
	assert.Equal(t, "medico1", claims["username"])
}

func TestLoginFailureIsUniform(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "tecnico1", model.RolTecnico)

	inactive := env.createUser(t, "inactivo1", model.RolTecnico)
	require.NoError(t, env.users.UpdateFields(context.Background(), inactive.ID, map[string]interface{}{"activo": false}))

	cases := map[string]LoginInput{
		"unknown username": loginInput("nadie", testPassword),
		"wrong password":   loginInput("tecnico1", "Wrong1234!"),
		"inactive account": loginInput("inactivo1", testPassword),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.auth.Login(context.Background(), in)
			appErr := apperror.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, http.StatusUnauthorized, appErr.Status)
			assert.Equal(t, "Credenciales incorrectas", appErr.Message)
		})
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "enfermero1", model.RolEnfermero)

	for i := 0; i < env.cfg.LockoutMaxAttempts; i++ {
		_, err := env.auth.Login(context.Background(), loginInput("enfermero1", "Wrong1234!"))
		require.Error(t, err)
	}

	// Even the correct password is rejected while locked.
	_, err := env.auth.Login(context.Background(), loginInput("enfermero1", testPassword))
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
}

func TestLoginLockoutExpiresWithWindow(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "enfermero2", model.RolEnfermero)

	for i := 0; i < env.cfg.LockoutMaxAttempts; i++ {
		_, err := env.auth.Login(context.Background(), loginInput("enfermero2", "Wrong1234!"))
		require.Error(t, err)
	}

	// Age the failures past the lockout window.
	cutoff := time.Now().Add(-env.cfg.LockoutWindow - time.Minute)
	require.NoError(t, env.db.Exec(
		"UPDATE login_attempts SET attempted_at = ? WHERE username = ?", cutoff, "enfermero2").Error)

	_, err := env.auth.Login(context.Background(), loginInput("enfermero2", testPassword))
	assert.NoError(t, err)
}

func TestLockoutCountsPerUsername(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "usuario_a", model.RolTecnico)
	env.createUser(t, "usuario_b", model.RolTecnico)

	for i := 0; i < env.cfg.LockoutMaxAttempts; i++ {
		_, err := env.auth.Login(context.Background(), loginInput("usuario_a", "Wrong1234!"))
		require.Error(t, err)
	}

	_, err := env.auth.Login(context.Background(), loginInput("usuario_b", testPassword))
	assert.NoError(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "medico2", model.RolMedico)

	result, err := env.auth.Login(context.Background(), loginInput("medico2", testPassword))
	require.NoError(t, err)

	pair, err := env.auth.Refresh(context.Background(), result.Tokens.RefreshToken, "127.0.0.1", "tests")
	require.NoError(t, err)
	assert.NotEqual(t, result.Tokens.RefreshToken, pair.RefreshToken)

	// Replaying the rotated-out token must fail.
	_, err = env.auth.Refresh(context.Background(), result.Tokens.RefreshToken, "127.0.0.1", "tests")
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)

	// The replacement still works.
	_, err = env.auth.Refresh(context.Background(), pair.RefreshToken, "127.0.0.1", "tests")
	assert.NoError(t, err)
}

func TestRefreshRejectsUnknownAndExpired(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "medico3", model.RolMedico)

	_, err := env.auth.Refresh(context.Background(), "not-a-token", "127.0.0.1", "tests")
	require.NotNil(t, apperror.As(err))

	result, err := env.auth.Login(context.Background(), loginInput("medico3", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.db.Exec(
		"UPDATE refresh_tokens SET expires_at = ? WHERE user_id = ?",
		time.Now().Add(-time.Hour), user.ID).Error)

	_, err = env.auth.Refresh(context.Background(), result.Tokens.RefreshToken, "127.0.0.1", "tests")
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
}

func TestRefreshRejectsDeactivatedOwner(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "medico4", model.RolMedico)

	result, err := env.auth.Login(context.Background(), loginInput("medico4", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.users.UpdateFields(context.Background(), user.ID, map[string]interface{}{"activo": false}))

	_, err = env.auth.Refresh(context.Background(), result.Tokens.RefreshToken, "127.0.0.1", "tests")
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "medico5", model.RolMedico)

	result, err := env.auth.Login(context.Background(), loginInput("medico5", testPassword))
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(context.Background(), result.Tokens.RefreshToken))

	_, err = env.auth.Refresh(context.Background(), result.Tokens.RefreshToken, "127.0.0.1", "tests")
	require.NotNil(t, apperror.As(err))

	// Logout is idempotent.
	assert.NoError(t, env.auth.Logout(context.Background(), result.Tokens.RefreshToken))
	assert.NoError(t, env.auth.Logout(context.Background(), ""))
}
