// Package textutil provides filename and token sanitization shared by the
// artifact store and the storage layout.
package textutil
