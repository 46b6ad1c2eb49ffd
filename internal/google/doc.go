// Package google loads the OAuth client configuration and stored user tokens
// used to call the Google Calendar API.
//
// The client configuration is the keys JSON downloaded from the Google Cloud
// console ("installed" or "web" application). Tokens are read from JSON files
// written by an earlier authorization; this package never runs an
// authorization flow itself.
//
// The TokenProvider interface allows other token sources to be plugged in.
package google
