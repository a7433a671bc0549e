package account

import (
	"context"
	"testing"

	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignUpAndSignIn(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := NewService(ms, zap.NewNop())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "Alice@example.com", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, user.UserID)
	assert.Equal(t, "Alice", user.Username)
	assert.NotEqual(t, "secret", user.CredentialSecret)

	// 索引键与解析一致
	resolved, err := ms.ResolveUserID(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, resolved)

	userID, err := svc.SignIn(ctx, "Alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, userID)

	_, err = svc.SignIn(ctx, "Alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestSignUp_Errors(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.SignUp(ctx, " ", "secret")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.SignUp(ctx, "bob", "")
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.SignUp(ctx, "bob", "x")
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, "bob@other.org", "y")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestSignIn_UnknownUsername(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), zap.NewNop())

	_, err := svc.SignIn(context.Background(), "nobody", "x")
	assert.ErrorIs(t, err, ErrUnknownUsername)
}

func TestHashCredential(t *testing.T) {
	assert.Equal(t, HashCredential("Bob", "pw"), HashCredential("bob", "pw"))
	assert.NotEqual(t, HashCredential("bob", "pw"), HashCredential("bob", "pw2"))
	assert.Len(t, HashCredential("bob", "pw"), 64)
}
