package domain

// Repository identifies a repository returned by the directory query
type Repository struct {
	Org       string
	Name      string
	FullName  string
	IsPrivate bool
}

// Member is a team or organization member returned by the directory
type Member struct {
	Org         string
	Username    string
	DisplayName string
}
