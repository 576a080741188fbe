// Package alert sends SOS notifications.
//
// A dispatch has two independent halves. The admin half records an alert
// for the operations dashboard (the sos_alerts table, the RabbitMQ fanout,
// the bus). The contact half looks up the signed-in user's emergency
// contacts and creates one notification per contact. Each half is best
// effort: a failing contact does not stop the remaining contacts, and
// nothing is retried automatically. The Report returned by Dispatch says
// exactly what was delivered so callers can tell "alert sent" from
// "alert failed".
package alert
