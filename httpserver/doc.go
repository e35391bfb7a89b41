/*
Package httpserver exposes a file storage adapter over HTTP.

A single adapter backs every endpoint. Files are addressed by the public id
returned on upload, passed as the id query parameter. Ids are opaque to
clients; the adapter rejects ids it did not issue.

# File API Endpoints

  - POST /api/files/{resource_id}/{filename} - Upload a file (201, JSON descriptor)
  - GET /api/files?id= - Download the latest version
  - GET /api/files/meta?id= - Describe the latest version without reading content
  - DELETE /api/files?id= - Remove every version (204)
  - GET /api/versions?id= - List every version, oldest first
  - POST /api/versions?id= - Upload a new version (201, JSON descriptor)
  - GET /api/handles?id= - Report whether the id belongs to this adapter

Uploads record the request Content-Type. Headers named X-File-Meta-<name>
are stored with the object as metadata under the lowercased name.

# Health Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check, fails while draining or while the backend is unreachable
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

# Errors

Malformed or foreign ids return 400. Unknown files return 404. Content
failing its integrity check returns 422 and is removed from the backend. An
unreachable backend returns 503. Other failures return 500 without details.
*/
package httpserver
