// Package extract turns one discovered URL into catalog text: conditional
// fetch, byte-hash skip, PDF or HTML text extraction, quality scoring and the
// final status decision. Fetched bytes live only in memory.
package extract
