package schema

// Built-in media model. Media attributes point at it with
// `model: file` or `collection: file` plus `plugin: upload`, or with
// `type: media`.
const (
	FileModelUID   = "file"
	FilePlugin     = "upload"
	FileCollection = "upload_file"
)

// Media link table. One row links a file to a field of an entry of any
// content type.
const (
	MorphTable             = "upload_file_morph"
	MorphFileColumn        = "upload_file_id"
	MorphRelatedIDColumn   = "related_id"
	MorphRelatedTypeColumn = "related_type"
	MorphFieldColumn       = "field"
	MorphOrderColumn       = "order"
)

// NewFileModel returns the definition of the upload file model.
func NewFileModel() *Model {
	str := func(name string) *Attribute { return &Attribute{Name: name, Type: TypeString} }
	required := true
	return &Model{
		UID:            FileModelUID,
		Kind:           KindContentType,
		CollectionName: FileCollection,
		Options:        Options{Timestamps: true},
		Attributes: Attributes{
			{Name: "name", Type: TypeString, Required: &required},
			str("alternative_text"),
			str("caption"),
			{Name: "width", Type: TypeInteger},
			{Name: "height", Type: TypeInteger},
			{Name: "hash", Type: TypeString, Required: &required},
			str("ext"),
			{Name: "mime", Type: TypeString, Required: &required},
			{Name: "size", Type: TypeDecimal, Required: &required},
			{Name: "url", Type: TypeString, Required: &required},
			str("preview_url"),
			{Name: "provider", Type: TypeString, Required: &required},
			{Name: "provider_metadata", Type: TypeJSON},
		},
	}
}
