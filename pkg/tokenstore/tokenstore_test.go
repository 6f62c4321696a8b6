package tokenstore

import "github.com/MagicBeansAI/magictunnel-sub000/pkg/secretval"

// newTestSecret is a small shared helper so individual test files don't
// each need to import secretval just to build a Secret literal.
func newTestSecret(v string) secretval.Secret {
	return secretval.New(v)
}
