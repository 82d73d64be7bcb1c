/*
Package session hosts many independent editing sessions in one process.

Each session owns an editor with its own canvas, recorder and history store.
Access to a session is serialized with reference-counted local locks and,
across replicas, an optional distributed locker.
*/
package session
