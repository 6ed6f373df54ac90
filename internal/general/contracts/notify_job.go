package contracts

// EmailJob is handed to the mail worker.
// Exchange: ExchangeNotifyDirect, routing key RouteNotifyEmail.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Envelope
}

// SMSJob is handed to the SMS worker.
// Exchange: ExchangeNotifyDirect, routing key RouteNotifySMS.
type SMSJob struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Envelope
}
