// Package auth stores pixiv session cookies per named account.
//
// Manager tries the system keyring first, then an AES-GCM encrypted file in
// the config directory, then the read-only PIXIVCRAWL_COOKIE environment
// variable.
package auth
