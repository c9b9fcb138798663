package domain

// Revealed is the result of decrypting a stored field. Fallback is set when the
// stored value could not be decrypted and Value is the stored text unchanged.
type Revealed struct {
	Value    string
	Fallback bool
}

// Decrypted wraps a successfully decrypted value.
func Decrypted(value string) Revealed {
	return Revealed{Value: value}
}

// Fallback wraps a stored value returned as-is.
func Fallback(original string) Revealed {
	return Revealed{Value: original, Fallback: true}
}

// Or returns Value, or def when the value only survived as a fallback.
func (r Revealed) Or(def string) string {
	if r.Fallback {
		return def
	}
	return r.Value
}
