package profile

// ProfileCreateOutput for POST /profiles/{fiscalCode} (201 Created)
type ProfileCreateOutput struct {
	Location string `header:"Location" doc:"URL of created profile"`
	Body     Profile
}

// ProfileGetOutput for GET /profiles/{fiscalCode}
type ProfileGetOutput struct {
	Body Profile
}

// ProfileUpdateOutput for PATCH /profiles/{fiscalCode}
type ProfileUpdateOutput struct {
	Body Profile
}

// HistoryData is one page of profile versions, newest first.
type HistoryData struct {
	Items []Profile `json:"items" doc:"Profile versions, newest first"`
}

// ProfileHistoryOutput for GET /profiles/{fiscalCode}/versions
type ProfileHistoryOutput struct {
	Link string `header:"Link" doc:"RFC 8288 pagination links"`
	Body HistoryData
}
