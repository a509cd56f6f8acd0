// Package internal holds random-material helpers shared by the engine:
// numeric OTP codes and session ids. Nothing here performs I/O.
package internal
