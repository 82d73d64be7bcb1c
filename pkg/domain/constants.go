package domain

// Keys of Node.Data shared by every node type.
// They double as mapstructure and JSON field names in NodeData.
const (
	KeyTitle = "title"
	KeyDesc  = "desc"
	KeyType  = "type"
)
