// Package redis provides Redis-backed adapters: a per-session history store
// built on lists and a distributed locker built on SET NX.
package redis
