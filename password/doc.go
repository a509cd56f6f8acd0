// Package password implements one-way password hashing with Argon2id and
// constant-time verification. Hashes are stored in PHC string format so
// parameters travel with the hash and can be tightened without invalidating
// existing credentials.
package password
