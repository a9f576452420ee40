/*
Package semtok stores and decodes LSP semantic tokens.

Tokens arrive from the server as a flat integer array, five values per token,
with positions delta-encoded against the previous token:

	 Wire Data               Decoded
	+-----------+          +-----------------+
	| deltaLine |          | line (absolute) |
	| deltaStart|   ==>    | start (absolute)|
	| length    |          | length          |
	| tokenType |          | tokenType       |
	| modifiers |          | tokenModifiers  |
	+-----------+          +-----------------+

The flat form is kept as the storage representation; decoding to absolute
positions is done lazily by an iterator. Incremental (delta) responses splice
the flat array in place.
*/
package semtok
