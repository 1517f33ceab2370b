package auth

import "context"

type authKey struct{}

// AuthInfo is the identity attached to a request by Middleware.
type AuthInfo struct {
	KeyID     string
	KeyName   string
	Principal string
	// Limits copied from the key; nil means the server default applies.
	RPMLimit              *int
	DailySpendLimitMicros *int64
}

func infoFromMetadata(m *KeyMetadata) *AuthInfo {
	return &AuthInfo{
		KeyID:                 m.ID,
		KeyName:               m.Name,
		Principal:             m.Principal,
		RPMLimit:              m.RPMLimit,
		DailySpendLimitMicros: m.DailySpendLimitMicros,
	}
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authKey{}, info)
}

// AuthFromContext returns the identity of an authenticated request.
func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authKey{}).(*AuthInfo)
	return info, ok && info != nil
}
