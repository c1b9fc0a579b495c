package store

// Mail is one stored inbound message. CreatedAt is in epoch seconds.
type Mail struct {
	ID        string `db:"id"`
	Mailbox   string `db:"mailbox"`
	Subject   string `db:"subject"`
	Text      string `db:"text_body"`
	HTML      string `db:"html_body"`
	Sender    string `db:"sender"`
	CreatedAt int64  `db:"created_at"`
}
