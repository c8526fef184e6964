// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

/*
Package auth manages the client session: login, logout, registration and
the current user.

Session state is Anonymous, Authenticating or Authenticated. Whether the
user is authenticated is decided by token presence alone; the token is
never validated locally.

Login responses come in several shapes. The user record is taken from the
first shape that matches, in this order:

 1. data.attributes (id from data.id)
 2. data.user
 3. user
 4. data, when it carries an email
 5. flat top-level fields (user_id or id, email, role or role_id)

The access token is read from data.token, meta.token or token; the CSRF
token from data.csrf_token, meta.csrf_token, csrf_token or xsrf_token.
*/
package auth
