package settings

// Field describes one input of the settings panel.
type Field struct {
	Key         string
	Name        string
	Description string
	Placeholder string
}

// Panel lists the settings panel inputs in display order.
func Panel() []Field {
	return []Field{
		{
			Key:         FieldPostsFolder,
			Name:        "Posts folder",
			Description: "Folder where the posts are stored.",
			Placeholder: "posts",
		},
		{
			Key:         FieldUsername,
			Name:        "Username",
			Description: "Handle written into new posts.",
			Placeholder: "local",
		},
		{
			Key:         FieldDisplayName,
			Name:        "Display name",
			Description: "Name shown above your posts.",
			Placeholder: "You",
		},
	}
}
