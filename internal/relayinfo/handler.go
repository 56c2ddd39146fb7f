// Package relayinfo serves this relay's own NIP-11 relay information
// document.
package relayinfo

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip11"
)

// SupportedNIPs lists every NIP this relay implements.
var SupportedNIPs = []int{1, 9, 11, 29, 40, 42, 70}

// Document builds the relay's NIP-11 document. pubkey/software/version
// describe this relay instance; queryLimit surfaces the REQ replay cap as
// the document's max_limit.
func Document(name, description, pubkey, software, version string, queryLimit int) *nip11.RelayInformationDocument {
	return &nip11.RelayInformationDocument{
		Name:          name,
		Description:   description,
		PubKey:        pubkey,
		SupportedNIPs: SupportedNIPs,
		Software:      software,
		Version:       version,
		Limitation: &nip11.RelayLimitationDocument{
			MaxLimit:     queryLimit,
			AuthRequired: false,
		},
	}
}

// Handler serves GET / with the relay info document when the client asks
// for it via Accept: application/nostr+json, and hands everything else to
// next (typically the WebSocket upgrade handler).
func Handler(doc *nip11.RelayInformationDocument, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
			w.Header().Set("Content-Type", "application/nostr+json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			_ = json.NewEncoder(w).Encode(doc)
			return
		}
		next.ServeHTTP(w, r)
	}
}
