// Package pop3 implements the POP3 (Post Office Protocol version 3)
// server of the Harbor mail store.
//
// The session walks the RFC 1939 states:
//
//	AUTHORIZATION → TRANSACTION → UPDATE
//
// Authentication is USER/PASS or single-step APOP against the stamp
// advertised in the greeting. A successful login finds the user's
// INBOX through the hierarchy layer and loads the message view: every
// message not yet past the deleted threshold, numbered 1..N for the
// lifetime of the session.
//
// Transaction commands operate purely on the in-memory view. DELE and
// RETR change only the virtual status of an entry; nothing is written
// until QUIT, when every entry whose virtual status diverged from its
// loaded status is reconciled to storage and a quota rebuild runs if
// any write happened. A dropped connection therefore loses all
// pending deletions, as the RFC requires.
//
// Supported commands: USER, PASS, APOP, AUTH, STAT, LIST, RETR, DELE,
// RSET, NOOP, LAST, UIDL, TOP, QUIT.
package pop3
