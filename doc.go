// Package auth is the authentication and session core of the marketplace:
// password signup and login, JWT access/refresh token pairs, and the refresh
// session registry that makes refresh tokens single use.
//
// Sessions:
//   - Every refresh token carries a jti that maps to one row in the session
//     store. Refresh rotates that row atomically, so a replayed token finds
//     nothing and is rejected. Logout deletes the row, logout-all deletes every
//     row of the user.
//   - SessionStore has a SQL implementation (NewSQLSessionStore) and a Redis
//     one in the repository package. SessionSweeper removes expired rows on an
//     interval.
//
// User lifecycle:
//   - Users carry a UserStatus. UserStateMachine owns the transition graph and
//     AuthService.ChangeStatus revokes every session when an account stops
//     being active.
//
// Activity sinks:
//   - ActivitySink receives signup, login, refresh rejection, logout-all and
//     status change events. Recording is best effort, sink errors are logged
//     and never fail the request.
//
// The social package adds Google, Kakao and Naver sign-in and account linking
// on top of AuthService.
package auth
