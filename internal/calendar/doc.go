// Package calendar provides a client for the Google Calendar API.
//
// Client is the upstream used by the event cache: it lists events (full and
// incremental by sync token) and sends raw multipart batch requests. It also
// carries the calendar list and event read/write calls used by the tools.
// Every request goes through a client side rate limiter and is recorded as a
// Google API operation metric and span.
//
// Example usage:
//
//	conf, err := google.LoadOAuthConfig(google.DefaultOAuthPath())
//	if err != nil {
//	    return err
//	}
//	client, err := calendar.NewClientForAccount(ctx, "default", conf,
//	    google.NewFileTokenProvider(""))
//	if err != nil {
//	    return err
//	}
//	calendars, err := client.ListCalendars(ctx)
package calendar
