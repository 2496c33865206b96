// Package envfile reads, merges and writes dotenv (.env) documents.
package envfile
