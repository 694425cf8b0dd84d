package emailvalidation

// ValidationConfirmInput for POST /email-validations
type ValidationConfirmInput struct {
	Body struct {
		Token string `json:"token" minLength:"3" maxLength:"256" doc:"Token from the validation email" example:"0b6f2c1e-3f5a-4d8e-9c1b-7a2d4e6f8a0b:9f86d081884c7d65"`
	}
}

// ValidationLinkInput for GET /email-validations, the link sent by email.
type ValidationLinkInput struct {
	Token string `query:"token" required:"true" minLength:"3" maxLength:"256" doc:"Token from the validation email"`
}
