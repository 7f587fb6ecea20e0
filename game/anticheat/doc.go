// Package anticheat tracks per-user action timing and rule violations across
// every room. Five violations block a user until an administrator clears them.
package anticheat
