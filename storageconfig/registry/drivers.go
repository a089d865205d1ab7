package registry

// defaultDescriptors is the built-in driver catalog:
// S3-compatible, WebDAV, OneDrive, Google Drive, GitHub Releases,
// Telegram Bot, local disk, and mirror. Field lists are the minimum a
// real client of each backend needs to authenticate and locate objects;
// concrete wire clients stay out of scope — only the
// schema and capability metadata live here.
func defaultDescriptors() []Descriptor {
	return []Descriptor{
		s3Descriptor(),
		webdavDescriptor(),
		localDescriptor(),
		onedriveDescriptor(),
		gdriveDescriptor(),
		githubReleasesDescriptor(),
		telegramDescriptor(),
		mirrorDescriptor(),
	}
}

func s3Descriptor() Descriptor {
	return Descriptor{
		Type:            "s3",
		DisplayName:     "S3-Compatible",
		ProviderOptions: []string{"aws", "r2", "b2", "minio", "other"},
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "endpoint_url", Kind: KindString, RequiredOnCreate: true, Validation: RuleURL},
				{Name: "bucket", Kind: KindString, RequiredOnCreate: true},
				{Name: "region", Kind: KindString},
				{Name: "access_key_id", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "secret_access_key", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "use_path_style", Kind: KindBoolean, DefaultValue: false},
				{Name: "default_folder", Kind: KindString, Validation: RuleAbsPath},
			},
			Layout: []Group{
				{TitleKey: "connection", Fields: [][]string{{"endpoint_url"}, {"region"}, {"bucket"}}},
				{TitleKey: "credentials", Fields: [][]string{{"access_key_id", "secret_access_key"}}},
				{TitleKey: "advanced", Fields: [][]string{{"use_path_style"}, {"default_folder"}}},
			},
		},
		Share:      ShareCapabilities{BackendStream: true, Presigned: true, URL: true},
		FS:         FSCapabilities{BackendStream: true, PresignedSingle: true, Multipart: true},
		DirectLink: true,
	}
}

func webdavDescriptor() Descriptor {
	return Descriptor{
		Type:        "webdav",
		DisplayName: "WebDAV",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "endpoint_url", Kind: KindString, RequiredOnCreate: true, Validation: RuleURL},
				{Name: "username", Kind: KindString, RequiredOnCreate: true},
				{Name: "password", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "default_folder", Kind: KindString, Validation: RuleAbsPath},
			},
			Layout: []Group{
				{TitleKey: "connection", Fields: [][]string{{"endpoint_url"}}},
				{TitleKey: "credentials", Fields: [][]string{{"username", "password"}}},
				{TitleKey: "advanced", Fields: [][]string{{"default_folder"}}},
			},
		},
		Share: ShareCapabilities{BackendStream: true, BackendForm: true},
		FS:    FSCapabilities{BackendStream: true, BackendForm: true},
	}
}

func localDescriptor() Descriptor {
	return Descriptor{
		Type:        "local",
		DisplayName: "Local Disk",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "root_path", Kind: KindString, RequiredOnCreate: true, Validation: RuleAbsPath},
			},
			Layout: []Group{
				{TitleKey: "connection", Fields: [][]string{{"root_path"}}},
			},
		},
		Share: ShareCapabilities{BackendStream: true},
		FS:    FSCapabilities{BackendStream: true},
	}
}

func onedriveDescriptor() Descriptor {
	return Descriptor{
		Type:            "onedrive",
		DisplayName:     "OneDrive",
		ProviderOptions: []string{"global", "us_gov", "cn"},
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "client_id", Kind: KindString, RequiredOnCreate: true},
				{Name: "client_secret", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "refresh_token", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "default_folder", Kind: KindString, Validation: RuleAbsPath},
			},
			Layout: []Group{
				{TitleKey: "credentials", Fields: [][]string{{"client_id", "client_secret"}, {"refresh_token"}}},
				{TitleKey: "advanced", Fields: [][]string{{"default_folder"}}},
			},
		},
		Share:      ShareCapabilities{BackendStream: true, URL: true},
		FS:         FSCapabilities{BackendStream: true},
		DirectLink: true,
	}
}

func gdriveDescriptor() Descriptor {
	return Descriptor{
		Type:        "gdrive",
		DisplayName: "Google Drive",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "client_id", Kind: KindString, RequiredOnCreate: true},
				{Name: "client_secret", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "refresh_token", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "default_folder", Kind: KindString, Validation: RuleAbsPath},
			},
			Layout: []Group{
				{TitleKey: "credentials", Fields: [][]string{{"client_id", "client_secret"}, {"refresh_token"}}},
				{TitleKey: "advanced", Fields: [][]string{{"default_folder"}}},
			},
		},
		Share:      ShareCapabilities{BackendStream: true, URL: true},
		FS:         FSCapabilities{BackendStream: true},
		DirectLink: true,
	}
}

func githubReleasesDescriptor() Descriptor {
	return Descriptor{
		Type:        "github_releases",
		DisplayName: "GitHub Releases",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "owner", Kind: KindString, RequiredOnCreate: true},
				{Name: "repo", Kind: KindString, RequiredOnCreate: true},
				{Name: "token", Kind: KindSecret, RequiredOnCreate: true},
			},
			Layout: []Group{
				{TitleKey: "repository", Fields: [][]string{{"owner", "repo"}}},
				{TitleKey: "credentials", Fields: [][]string{{"token"}}},
			},
		},
		Share:      ShareCapabilities{URL: true},
		FS:         FSCapabilities{BackendForm: true},
		DirectLink: true,
	}
}

func telegramDescriptor() Descriptor {
	return Descriptor{
		Type:        "telegram",
		DisplayName: "Telegram Bot",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "bot_token", Kind: KindSecret, RequiredOnCreate: true},
				{Name: "chat_id", Kind: KindString, RequiredOnCreate: true},
				{Name: "self_hosted_api_base_url", Kind: KindString, Validation: RuleURL},
			},
			Layout: []Group{
				{TitleKey: "bot", Fields: [][]string{{"bot_token"}, {"chat_id"}}},
				{TitleKey: "advanced", Fields: [][]string{{"self_hosted_api_base_url"}}},
			},
		},
		Share: ShareCapabilities{BackendForm: true},
		FS:    FSCapabilities{BackendForm: true},
		// The official bot API rejects bodies over 20 MiB; a config
		// pointed at a self-hosted API server has no such cap.
		UploadCapBytes:      20 * 1024 * 1024,
		UploadCapExemptWhen: &Predicate{Field: "self_hosted_api_base_url", Truthy: true},
	}
}

func mirrorDescriptor() Descriptor {
	return Descriptor{
		Type:        "mirror",
		DisplayName: "Mirror Source",
		Schema: ConfigSchema{
			Fields: []Field{
				{Name: "source_url", Kind: KindString, RequiredOnCreate: true, Validation: RuleURL},
				{Name: "cache_ttl_seconds", Kind: KindNumber, DefaultValue: float64(3600)},
			},
			Layout: []Group{
				{TitleKey: "source", Fields: [][]string{{"source_url"}, {"cache_ttl_seconds"}}},
			},
		},
		Share:      ShareCapabilities{URL: true},
		FS:         FSCapabilities{},
		DirectLink: true,
		ReadOnly:   true,
	}
}
