package server

// indexHTML is the viewer page. It subscribes to /ws and swaps in each
// client's latest frame as it is announced.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>livedash</title>
<style>
body { font-family: sans-serif; background: #f4f4f4; margin: 16px; }
#status { color: #666; margin-bottom: 12px; }
.client { display: inline-block; vertical-align: top; margin: 0 12px 12px 0; background: #fff; border: 1px solid #ddd; }
.client img { display: block; max-width: 100%; }
</style>
</head>
<body>
<div id="status">connecting…</div>
<div id="clients"></div>
<script>
(function () {
  var container = document.getElementById("clients");
  var status = document.getElementById("status");

  function show(f) {
    var el = document.getElementById("client-" + f.client_id);
    if (!el) {
      el = document.createElement("div");
      el.className = "client";
      el.id = "client-" + f.client_id;
      el.appendChild(document.createElement("img"));
      container.appendChild(el);
    }
    el.firstChild.src = f.url + "?v=" + f.version;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function () { status.textContent = "live"; };
    ws.onclose = function () {
      status.textContent = "disconnected, retrying…";
      setTimeout(connect, 1000);
    };
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "frame.updated") {
        show(msg.payload);
      } else if (msg.type === "client.removed") {
        var el = document.getElementById("client-" + msg.payload.client_id);
        if (el) { el.remove(); }
      }
    };
  }
  connect();
})();
</script>
</body>
</html>
`
