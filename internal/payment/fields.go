package payment

// Field is one posted form field as handed to the payer's browser.
type Field struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Editable bool   `json:"editable"`
}

// FieldSet is an ordered set of signed and unsigned fields. Insertion order is kept
// for both subsets; the signature is computed over the signed subset in that order.
type FieldSet struct {
	signed    []string
	unsigned  []string
	values    map[string]string
	editable  map[string]bool
	signature string
}

func NewFieldSet() *FieldSet {
	return &FieldSet{
		values:   make(map[string]string),
		editable: make(map[string]bool),
	}
}

// SetSigned adds or updates a signed field. An existing field keeps its position.
func (f *FieldSet) SetSigned(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.signed = append(f.signed, key)
	}
	f.values[key] = value
}

// SetUnsigned adds or updates an unsigned field.
func (f *FieldSet) SetUnsigned(key, value string, editable bool) {
	if _, ok := f.values[key]; !ok {
		f.unsigned = append(f.unsigned, key)
	}
	f.values[key] = value
	f.editable[key] = editable
}

func (f *FieldSet) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *FieldSet) Get(key string) string {
	return f.values[key]
}

func (f *FieldSet) Signature() string {
	return f.signature
}

func (f *FieldSet) SignedNames() []string {
	return append([]string(nil), f.signed...)
}

func (f *FieldSet) UnsignedNames() []string {
	return append([]string(nil), f.unsigned...)
}

// Values returns a copy of every field, including the signature once signed.
func (f *FieldSet) Values() map[string]string {
	out := make(map[string]string, len(f.values)+1)
	for k, v := range f.values {
		out[k] = v
	}
	if f.signature != "" {
		out[FieldSignature] = f.signature
	}
	return out
}

// List returns signed fields, then unsigned fields, then the signature.
func (f *FieldSet) List() []Field {
	out := make([]Field, 0, len(f.signed)+len(f.unsigned)+1)
	for _, k := range f.signed {
		out = append(out, Field{Key: k, Value: f.values[k]})
	}
	for _, k := range f.unsigned {
		out = append(out, Field{Key: k, Value: f.values[k], Editable: f.editable[k]})
	}
	if f.signature != "" {
		out = append(out, Field{Key: FieldSignature, Value: f.signature})
	}
	return out
}
