// Package password provides the engine's single password-hash primitive:
// argon2id with PHC-encoded output. It is used for account passwords only;
// session and link tokens are matched with a dedicated keyed MAC elsewhere.
package password
